package tts

import "strings"

type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

// Voice is one synthesizer voice.
type Voice struct {
	Model  string
	Lang   string
	Gender Gender
}

// AuraVoices lists the Deepgram Aura 2 voices Saddie may use.
var AuraVoices = []Voice{
	{Model: "aura-2-apollo-en", Lang: "en-US", Gender: Male},
	{Model: "aura-2-draco-en", Lang: "en-GB", Gender: Male},
	{Model: "aura-2-pandora-en", Lang: "en-GB", Gender: Female},
	{Model: "aura-2-thalia-en", Lang: "en-US", Gender: Female},
	{Model: "aura-2-andromeda-en", Lang: "en-US", Gender: Female},
	{Model: "aura-2-orion-en", Lang: "en-US", Gender: Male},
	{Model: "aura-2-hyperion-en", Lang: "en-AU", Gender: Male},
}

// SelectVoice prefers an en-US female voice, then any en-US voice not marked male,
// then any en-US voice. ok is false when no en-US voice exists.
func SelectVoice(voices []Voice) (v Voice, ok bool) {
	usEnglish := func(v Voice) bool { return strings.EqualFold(v.Lang, "en-US") }
	rules := []func(Voice) bool{
		func(v Voice) bool { return usEnglish(v) && v.Gender == Female },
		func(v Voice) bool { return usEnglish(v) && v.Gender != Male },
		usEnglish,
	}
	for _, match := range rules {
		for _, v := range voices {
			if match(v) {
				return v, true
			}
		}
	}
	return Voice{}, false
}

func VoiceByModel(voices []Voice, model string) (Voice, bool) {
	if model == "" {
		return Voice{}, false
	}
	for _, v := range voices {
		if v.Model == model {
			return v, true
		}
	}
	return Voice{}, false
}
