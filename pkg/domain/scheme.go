package domain

import (
	"strconv"
	"strings"

	dErrors "certify/pkg/domain-errors"
)

// Scheme is one of the fixed certification schemes a case is assessed against.
type Scheme string

const (
	SchemeAirPollutionInstallation Scheme = "pjoi-air-pollution"
	SchemeAirPollution             Scheme = "pj-air-pollution"
	SchemeWastewater               Scheme = "pjo-wastewater"
	SchemeWaterPollution           Scheme = "pj-water-pollution"
)

// Schemes lists the catalog in its canonical order. The position of each
// scheme is its legacy numeric index.
var Schemes = []Scheme{
	SchemeAirPollutionInstallation,
	SchemeAirPollution,
	SchemeWastewater,
	SchemeWaterPollution,
}

var schemeNames = map[Scheme]string{
	SchemeAirPollutionInstallation: "Okupasi Penanggung Jawab Operasional Instalasi Pengendalian Pencemaran Udara",
	SchemeAirPollution:             "Okupasi Penanggung Jawab Pengendalian Pencemaran Udara",
	SchemeWastewater:               "Okupasi Penanggung Jawab Operasional Pengolahan Air Limbah",
	SchemeWaterPollution:           "Okupasi Penanggung Jawab Pengendalian Pencemaran Air",
}

// ParseScheme accepts a scheme code or its numeric index.
func ParseScheme(s string) (Scheme, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scheme is required")
	}
	if idx, err := strconv.Atoi(s); err == nil {
		if idx < 0 || idx >= len(Schemes) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "scheme index out of range")
		}
		return Schemes[idx], nil
	}
	sc := Scheme(strings.ToLower(s))
	if _, ok := schemeNames[sc]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown scheme")
	}
	return sc, nil
}

func (s Scheme) IsValid() bool {
	_, ok := schemeNames[s]
	return ok
}

// Name returns the human-readable scheme title.
func (s Scheme) Name() string {
	return schemeNames[s]
}

func (s Scheme) String() string { return string(s) }
