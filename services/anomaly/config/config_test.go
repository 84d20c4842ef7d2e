// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaults(t *testing.T) {
	p := Defaults()
	assert.Equal(t, VariantStatistical, p.Variant)
	assert.Equal(t, 3, p.TargetDepth)
	assert.Equal(t, 1, p.NValue)
	assert.Equal(t, 0.05, p.LearningRate)
	assert.Equal(t, 1, p.Epochs)
	assert.Equal(t, 50, p.BatchSize)
	assert.Equal(t, 0.10, p.AnomalyThreshold)
	assert.False(t, p.Boxed)
	require.NoError(t, p.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeParams(t, "variant: statistical\ntarget_depth: 5\nn_value: 2\n")
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TargetDepth)
	assert.Equal(t, 2, p.NValue)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 50, p.BatchSize)
	assert.Equal(t, 0.10, p.AnomalyThreshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateUnknownVariant(t *testing.T) {
	p := Defaults()
	p.Variant = "quantum"
	require.ErrorIs(t, p.Validate(), ErrUnknownVariant)
}

func TestValidateModelVariantsNeedPath(t *testing.T) {
	for _, variant := range []Variant{VariantModelTrain, VariantModelApply} {
		p := Defaults()
		p.Variant = variant
		require.ErrorIs(t, p.Validate(), ErrModelMissing, string(variant))

		p.ModelPath = "/tmp/model.gob"
		require.NoError(t, p.Validate(), string(variant))
	}
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero depth", func(p *Params) { p.TargetDepth = 0 }},
		{"zero n", func(p *Params) { p.NValue = 0 }},
		{"negative rate", func(p *Params) { p.LearningRate = -0.1 }},
		{"zero epochs", func(p *Params) { p.Epochs = 0 }},
		{"zero batch", func(p *Params) { p.BatchSize = 0 }},
		{"threshold above one", func(p *Params) { p.AnomalyThreshold = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Defaults()
			tc.mutate(&p)
			require.Error(t, p.Validate())
		})
	}
}

func TestEncodingMode(t *testing.T) {
	p := Defaults()
	assert.Equal(t, arrays.ModePrimitive, p.EncodingMode())
	p.Boxed = true
	assert.Equal(t, arrays.ModeBoxed, p.EncodingMode())
}
