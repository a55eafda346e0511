package matcher

import "sort"

// licenseFingerprints maps SPDX identifiers to short distinctive
// phrases from each license's text. A phrase match via FuzzyContains
// is enough to attribute the license; the phrases are chosen so no two
// licenses share one.
var licenseFingerprints = map[string][]string{
	"MIT": {
		"permission is hereby granted free of charge to any person obtaining a copy of this software",
		"the software is provided as is without warranty of any kind express or implied",
	},
	"Apache-2.0": {
		"licensed under the apache license version 2 0",
		"unless required by applicable law or agreed to in writing software distributed under the license",
	},
	"GPL-3.0": {
		"this program is free software you can redistribute it and or modify it under the terms of the gnu general public license",
		"gnu general public license version 3",
	},
	"BSD-3-Clause": {
		"redistribution and use in source and binary forms with or without modification are permitted",
		"neither the name of the copyright holder nor the names of its contributors may be used to endorse",
	},
	"MPL-2.0": {
		"this source code form is subject to the terms of the mozilla public license v 2 0",
	},
	"LGPL-3.0": {
		"gnu lesser general public license",
	},
	"AGPL-3.0": {
		"gnu affero general public license",
	},
	"Unlicense": {
		"this is free and unencumbered software released into the public domain",
	},
}

// MatchLicense scans text for known license fingerprints and returns
// the matching SPDX identifiers, sorted.
func MatchLicense(text string) []string {
	normalized := Normalize(text)
	var matched []string
	for id, phrases := range licenseFingerprints {
		for _, phrase := range phrases {
			if FuzzyContains(normalized, phrase, DefaultThreshold) {
				matched = append(matched, id)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// KnownLicenses returns the SPDX identifiers the fingerprint table
// covers, sorted.
func KnownLicenses() []string {
	ids := make([]string, 0, len(licenseFingerprints))
	for id := range licenseFingerprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
