// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the tunable parameters of an anomaly analysis
// run: which detector variant to execute and the knobs each variant
// reads. Parameters load from YAML and validate before a run starts.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/stacksight/services/anomaly/arrays"
)

// Variant selects which analysis a run executes.
type Variant string

const (
	// VariantStatistical scores vectors against the population's own
	// per-slot statistics. No model file involved.
	VariantStatistical Variant = "statistical"
	// VariantModelTrain fits a reconstruction model from the vectors
	// and saves it; no scoring happens.
	VariantModelTrain Variant = "model-train"
	// VariantModelApply loads a previously trained model and scores
	// vectors against it.
	VariantModelApply Variant = "model-apply"
)

var (
	// ErrModelMissing indicates a model variant was requested without
	// a model path.
	ErrModelMissing = errors.New("config: model path required for model variants")
	// ErrUnknownVariant indicates an unrecognized variant name.
	ErrUnknownVariant = errors.New("config: unknown analysis variant")
)

// Params is the full parameter set of an analysis run. Defaults match
// the values most runs want; Load overlays a YAML file on top of them.
type Params struct {
	// Variant picks the analysis to run.
	Variant Variant `yaml:"variant" validate:"required"`
	// TargetDepth bounds how deep below each root call vectors reach.
	TargetDepth int `yaml:"target_depth" validate:"gte=1"`
	// NValue sharpens statistical scores: raw = deviation^N.
	NValue int `yaml:"n_value" validate:"gte=1"`
	// LearningRate, Epochs and BatchSize drive model training.
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	Epochs       int     `yaml:"epochs" validate:"gte=1"`
	BatchSize    int     `yaml:"batch_size" validate:"gte=1"`
	// AnomalyThreshold is recorded with the results so consumers can
	// flag scores above it.
	AnomalyThreshold float64 `yaml:"anomaly_threshold" validate:"gte=0,lte=1"`
	// ModelPath locates the model file for the model variants.
	ModelPath string `yaml:"model_path"`
	// Boxed switches the vector container to its boxed encoding.
	Boxed bool `yaml:"boxed"`
}

// Defaults returns the parameter set runs start from.
func Defaults() Params {
	return Params{
		Variant:          VariantStatistical,
		TargetDepth:      3,
		NValue:           1,
		LearningRate:     0.05,
		Epochs:           1,
		BatchSize:        50,
		AnomalyThreshold: 0.10,
	}
}

// Load reads a YAML parameter file over the defaults and validates the
// result.
func Load(path string) (Params, error) {
	params := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return Params{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Validate checks field ranges and the cross-field rules the tags
// cannot express.
func (p Params) Validate() error {
	switch p.Variant {
	case VariantStatistical, VariantModelTrain, VariantModelApply:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVariant, p.Variant)
	}
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("config: invalid parameters: %w", err)
	}
	if (p.Variant == VariantModelTrain || p.Variant == VariantModelApply) && p.ModelPath == "" {
		return ErrModelMissing
	}
	return nil
}

// EncodingMode maps the boxed flag onto the container's encoding mode.
func (p Params) EncodingMode() arrays.EncodingMode {
	if p.Boxed {
		return arrays.ModeBoxed
	}
	return arrays.ModePrimitive
}
