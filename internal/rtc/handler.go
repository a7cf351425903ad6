// Package rtc bridges a browser's WebRTC call to a voice session: caller audio goes to
// speech recognition, synthesized replies come back as paced Opus, and a data channel
// carries commands and UI updates.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	"github.com/Rituearth/SADDIE-2.0/internal/transcript"
	"github.com/Rituearth/SADDIE-2.0/internal/tts"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// activityEvery publishes the mic level once per this many 20ms packets.
	activityEvery = 5
	// disconnectGrace is how long a disconnected peer may take to reconnect.
	disconnectGrace = 10 * time.Second
)

var ErrInvalidOffer = errors.New("rtc: invalid offer")

// SessionDescription keeps webrtc types out of the transport layer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Deps are shared by every call.
type Deps struct {
	Session       agent.Config
	LLM           agent.LLM
	Orders        agent.OrderSink
	Synthesizer   tts.Synthesizer
	AssemblyAIKey string
	ICEServers    []webrtc.ICEServer
}

// Handler accepts calls and keeps track of the live ones.
type Handler struct {
	deps Deps

	mu    sync.Mutex
	calls map[string]*call
}

func NewHandler(deps Deps) *Handler {
	if len(deps.ICEServers) == 0 {
		deps.ICEServers = DefaultICEServers()
	}
	return &Handler{deps: deps, calls: make(map[string]*call)}
}

// DefaultICEServers is a public STUN server.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// ParseICEServers reads a JSON array of ICE servers, falling back to DefaultICEServers.
func ParseICEServers(raw string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(raw), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return DefaultICEServers()
}

// ActiveCalls reports how many calls are connected or connecting.
func (h *Handler) ActiveCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// Close hangs up every call.
func (h *Handler) Close() {
	h.mu.Lock()
	calls := make([]*call, 0, len(h.calls))
	for _, c := range h.calls {
		calls = append(calls, c)
	}
	h.mu.Unlock()
	for _, c := range calls {
		c.hangup()
	}
}

// HandleOffer answers an SDP offer once ICE gathering completes.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, ErrInvalidOffer
	}

	pc, outTrack, err := h.newPeer()
	if err != nil {
		return SessionDescription{}, err
	}
	c, err := h.newCall(pc, outTrack)
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		c.hangup()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.hangup()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		c.hangup()
		return SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		c.hangup()
		return SessionDescription{}, ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		c.hangup()
		return SessionDescription{}, errors.New("rtc: no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

func (h *Handler) newPeer() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: h.deps.ICEServers})
	if err != nil {
		return nil, nil, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: 1}, "saddie-audio", "saddie")
	if err != nil {
		_ = pc.Close()
		return nil, nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, nil, err
	}
	return pc, outTrack, nil
}

// call is one connected browser and the session talking to it.
type call struct {
	id      string
	h       *Handler
	pc      *webrtc.PeerConnection
	paced   *OpusPacedWriter
	rec     *transcript.AssemblyAI
	speaker *tts.Speaker
	control *controlChannel
	session *agent.Session
	meter   ActivityMeter
	log     zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	runOnce sync.Once
	ended   atomic.Bool

	grace     time.Duration
	dropMu    sync.Mutex
	dropTimer *time.Timer
}

func (h *Handler) newCall(pc *webrtc.PeerConnection, outTrack *webrtc.TrackLocalStaticSample) (*call, error) {
	paced, err := NewOpusPacedWriter(outTrack)
	if err != nil {
		return nil, err
	}
	c := &call{
		id:    uuid.NewString(),
		h:     h,
		pc:    pc,
		paced: paced,
		rec:   transcript.NewAssemblyAI(h.deps.AssemblyAIKey),
		grace: disconnectGrace,
	}
	c.log = log.With().Str("call_id", c.id).Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.speaker = tts.NewSpeaker(h.deps.Synthesizer, paced)
	c.control = newControlChannel(c.log)
	c.session = agent.NewSession(h.deps.Session, h.deps.LLM, c.speaker, c.rec, c.control, h.deps.Orders)

	pc.OnConnectionStateChange(c.onConnectionState)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.log.Debug().Str("state", state.String()).Msg("ice state")
	})
	pc.OnDataChannel(c.onDataChannel)
	pc.OnTrack(c.onTrack)

	h.mu.Lock()
	h.calls[c.id] = c
	h.mu.Unlock()
	c.log.Info().Str("session_id", c.session.ID()).Msg("call created")
	return c, nil
}

func (c *call) onConnectionState(state webrtc.PeerConnectionState) {
	c.log.Info().Str("state", state.String()).Msg("peer connection state")
	switch state {
	case webrtc.PeerConnectionStateConnected:
		c.keep()
		c.runOnce.Do(func() {
			go func() {
				if err := c.session.Run(c.ctx); err != nil {
					c.log.Error().Err(err).Msg("session stopped")
				}
			}()
		})
	case webrtc.PeerConnectionStateDisconnected:
		c.dropAfter(c.grace)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		c.hangup()
	}
}

// dropAfter hangs up unless the peer reconnects within d.
func (c *call) dropAfter(d time.Duration) {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	if c.dropTimer == nil {
		c.dropTimer = time.AfterFunc(d, c.hangup)
	}
}

func (c *call) keep() {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	if c.dropTimer != nil {
		c.dropTimer.Stop()
		c.dropTimer = nil
	}
}

func (c *call) onDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() != ControlLabel {
		return
	}
	dc.OnOpen(func() {
		c.log.Debug().Msg("control channel open")
		go c.control.pump(dc.SendText)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		cmd, ok := parseCommand(msg.Data)
		if !ok || !dispatch(c.session, cmd) {
			c.log.Warn().Str("data", string(msg.Data)).Msg("control: unknown command")
		}
	})
}

func (c *call) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if remote.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	c.log.Info().Str("codec", remote.Codec().MimeType).Msg("caller audio track")

	packets := 0
	mic, err := newMicPipeline(c.rec.Feed, &c.meter, func(level float64) {
		packets++
		if packets%activityEvery == 0 {
			c.control.OnActivity(level)
		}
	}, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("opus decoder")
		return
	}
	go mic.run(remote)
}

func (c *call) hangup() {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.keep()
	c.cancel()
	c.speaker.Close()
	c.rec.Close()
	c.paced.Close()
	c.control.close()
	_ = c.pc.Close()

	c.h.mu.Lock()
	delete(c.h.calls, c.id)
	c.h.mu.Unlock()
	c.log.Info().Msg("call ended")
}
