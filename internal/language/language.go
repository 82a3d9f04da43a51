package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// whisperNames maps the lowercase language names returned by verbose
// transcription responses to ISO 639-1 codes.
var whisperNames = map[string]string{
	"afrikaans": "af", "arabic": "ar", "armenian": "hy", "azerbaijani": "az",
	"belarusian": "be", "bosnian": "bs", "bulgarian": "bg", "catalan": "ca",
	"chinese": "zh", "croatian": "hr", "czech": "cs", "danish": "da",
	"dutch": "nl", "english": "en", "estonian": "et", "finnish": "fi",
	"french": "fr", "galician": "gl", "german": "de", "greek": "el",
	"hebrew": "he", "hindi": "hi", "hungarian": "hu", "icelandic": "is",
	"indonesian": "id", "italian": "it", "japanese": "ja", "kannada": "kn",
	"kazakh": "kk", "korean": "ko", "latvian": "lv", "lithuanian": "lt",
	"macedonian": "mk", "malay": "ms", "marathi": "mr", "maori": "mi",
	"nepali": "ne", "norwegian": "no", "persian": "fa", "polish": "pl",
	"portuguese": "pt", "romanian": "ro", "russian": "ru", "serbian": "sr",
	"slovak": "sk", "slovenian": "sl", "spanish": "es", "swahili": "sw",
	"swedish": "sv", "tagalog": "tl", "tamil": "ta", "thai": "th",
	"turkish": "tr", "ukrainian": "uk", "urdu": "ur", "vietnamese": "vi",
	"welsh": "cy",
}

// Normalize returns the ISO 639-1 code for value, or "" when it is empty or
// unrecognized. Regional tags collapse to their base language.
func Normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := whisperNames[value]; ok {
		return code
	}
	tag, err := xlanguage.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return ""
	}
	iso := base.String()
	if len(iso) != 2 {
		return ""
	}
	return iso
}

// DisplayName returns the English name for a code accepted by Normalize, or
// "Unknown".
func DisplayName(value string) string {
	code := Normalize(value)
	if code == "" {
		return "Unknown"
	}
	name := display.English.Languages().Name(xlanguage.Make(code))
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}
