// Package places recognises airports and railway stations in free-text
// addresses so that notifications can tell the customer where the driver
// will wait.
package places

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind is the classification of an address.
type Kind int

const (
	Neither Kind = iota
	Airport
	TrainStation
)

func (k Kind) String() string {
	switch k {
	case Airport:
		return "airport"
	case TrainStation:
		return "train_station"
	}
	return "neither"
}

var (
	airportWords = []string{"aeroport", "airport", "aerogare", "flughafen", "aeropuerto", "terminal"}
	airportCodes = []string{"cdg", "ory", "gva", "lys", "nce", "mrs", "bsl", "tls"}
	stationWords = []string{"gare", "station", "sncf", "bahnhof", "estacion", "stazione"}
	// "gare routiere" is the coach station, not a railway station.
	stationExcludes = []string{"gare routiere"}
)

// Classify reports whether address names an airport, a railway station or
// neither. Matching ignores case and accents.
func Classify(address string) Kind {
	words := tokens(fold(address))
	if len(words) == 0 {
		return Neither
	}
	joined := " " + strings.Join(words, " ") + " "

	for _, w := range airportWords {
		if containsWord(joined, w) {
			return Airport
		}
	}
	for _, c := range airportCodes {
		if containsWord(joined, c) && (containsWord(joined, "aeroport") || len(words) <= 2) {
			return Airport
		}
	}
	for _, ex := range stationExcludes {
		if strings.Contains(joined, " "+ex+" ") {
			return Neither
		}
	}
	for _, w := range stationWords {
		if containsWord(joined, w) {
			return TrainStation
		}
	}
	return Neither
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lower-cases s and removes diacritics.
func fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsWord(joined, w string) bool {
	return strings.Contains(joined, " "+w+" ")
}
