package util

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	countryNamesOnce sync.Once
	countryNames     map[string]string
	foldCase         = cases.Fold()
)

func countryKey(s string) string {
	return foldCase.String(strings.Join(strings.Fields(s), " "))
}

func loadCountryNames() {
	countryNames = make(map[string]string)
	namer := display.English.Regions()
	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			region, err := language.ParseRegion(string([]rune{a, b}))
			if err != nil || !region.IsCountry() {
				continue
			}
			if name := namer.Name(region); name != "" {
				countryNames[countryKey(name)] = region.String()
			}
		}
	}
}

// CountryCode resolves an ISO 3166-1 alpha-2 or alpha-3 code or an English
// country name to its alpha-2 code.
func CountryCode(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if len(input) == 2 || len(input) == 3 {
		if region, err := language.ParseRegion(strings.ToUpper(input)); err == nil {
			region = region.Canonicalize()
			if region.IsCountry() && len(region.String()) == 2 {
				return region.String(), true
			}
		}
	}
	countryNamesOnce.Do(loadCountryNames)
	code, ok := countryNames[countryKey(input)]
	return code, ok
}
