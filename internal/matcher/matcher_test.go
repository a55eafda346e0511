package matcher

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"collapses punctuation and whitespace", "hello,   world!!", "hello world"},
		{"strips leading and trailing separators", "  (hello)  ", "hello"},
		{"compatibility forms", "ﬁle №42", "file no42"},
		{"empty", "", ""},
		{"only punctuation", "---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, Tokenize("The quick, brown fox!"))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("same text here", "same text here"))
	assert.Equal(t, 1.0, Similarity("Same, TEXT here", "same text    here"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("something", ""))
	assert.Equal(t, 0.0, Similarity("completely different words", "nothing shared at all"))

	near := Similarity(
		"the quick brown fox jumps over the lazy dog",
		"the quick brown fox leaps over the lazy dog",
	)
	assert.Greater(t, near, 0.3)
	assert.Less(t, near, 1.0)
}

func TestContainment(t *testing.T) {
	haystack := "preamble text the quick brown fox jumps over the lazy dog trailing text"
	assert.Equal(t, 1.0, Containment(haystack, "quick brown fox jumps over"))
	assert.Equal(t, 1.0, Containment(haystack, ""))
	assert.Equal(t, 0.0, Containment("unrelated content entirely", "quick brown fox jumps"))
}

func TestFuzzyContains(t *testing.T) {
	haystack := "Notice: The QUICK brown fox jumps over the lazy dog, obviously."

	t.Run("exact normalized substring", func(t *testing.T) {
		assert.True(t, FuzzyContains(haystack, "quick brown fox", 0))
	})

	t.Run("short needle below shingle width", func(t *testing.T) {
		assert.True(t, FuzzyContains(haystack, "lazy dog", 0))
		assert.False(t, FuzzyContains(haystack, "purple cow", 0))
	})

	t.Run("tolerates small edits", func(t *testing.T) {
		// One substituted word out of nine tokens.
		needle := "the quick brown fox leaps over the lazy dog"
		assert.False(t, FuzzyContains(haystack, needle, 0.9))
		assert.True(t, FuzzyContains(haystack, needle, 0.4))
	})

	t.Run("zero threshold uses default", func(t *testing.T) {
		assert.False(t, FuzzyContains("nothing in common", "quick brown fox jumps", 0))
	})
}

func TestMatchLicense(t *testing.T) {
	mit := `Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the "Software"),
to deal in the Software without restriction.`

	apache := `Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.`

	t.Run("mit", func(t *testing.T) {
		assert.Equal(t, []string{"MIT"}, MatchLicense(mit))
	})

	t.Run("apache", func(t *testing.T) {
		assert.Equal(t, []string{"Apache-2.0"}, MatchLicense(apache))
	})

	t.Run("multiple licenses sorted", func(t *testing.T) {
		got := MatchLicense(mit + "\n\n" + apache)
		assert.Equal(t, []string{"Apache-2.0", "MIT"}, got)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, MatchLicense("just an ordinary readme"))
	})
}

func TestKnownLicenses(t *testing.T) {
	ids := KnownLicenses()
	assert.Contains(t, ids, "MIT")
	assert.Contains(t, ids, "Apache-2.0")
	assert.True(t, sort.StringsAreSorted(ids))
}
