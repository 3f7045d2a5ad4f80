/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// ErrInvalidSettings is returned when a settings value is out of range
var ErrInvalidSettings = errors.New("invalid settings")

// AutoLanguage disables translation target selection; captions are shown as recognized.
const AutoLanguage = "auto"

// Position places the caption on the video surface
type Position string

const (
	PositionBottom Position = "bottom"
	PositionTop    Position = "top"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// DisplayConfig holds the caption styling read at render time
type DisplayConfig struct {
	FontSize          string   `json:"fontSize"`
	TextColor         string   `json:"textColor"`
	BackgroundOpacity int      `json:"backgroundOpacity"` // 0-100
	Position          Position `json:"position"`
}

// BackgroundColor returns the CSS background derived from BackgroundOpacity
func (d DisplayConfig) BackgroundColor() string {
	return fmt.Sprintf("rgba(0, 0, 0, %g)", float64(d.BackgroundOpacity)/100)
}

// Settings is the persisted settings record. The JSON layout is flat.
type Settings struct {
	TranslationEnabled bool   `json:"translationEnabled"`
	TargetLanguage     string `json:"targetLanguage"`
	DisplayConfig
}

// DefaultSettings returns the settings used before anything is persisted
func DefaultSettings() Settings {
	return Settings{
		TranslationEnabled: true,
		TargetLanguage:     "en",
		DisplayConfig: DisplayConfig{
			FontSize:          "18px",
			TextColor:         "#ffffff",
			BackgroundOpacity: 80,
			Position:          PositionBottom,
		},
	}
}

// ShouldTranslate reports whether final phrases go through the translation service
func (s Settings) ShouldTranslate() bool {
	return s.TranslationEnabled && s.TargetLanguage != AutoLanguage
}

// Validate checks every field against the record schema
func (s Settings) Validate() error {
	if _, err := NormalizeLanguage(s.TargetLanguage); err != nil {
		return err
	}
	if strings.TrimSpace(s.FontSize) == "" {
		return fmt.Errorf("%w: font size is required", ErrInvalidSettings)
	}
	if !hexColor.MatchString(s.TextColor) {
		return fmt.Errorf("%w: text color %q is not a hex color", ErrInvalidSettings, s.TextColor)
	}
	if s.BackgroundOpacity < 0 || s.BackgroundOpacity > 100 {
		return fmt.Errorf("%w: background opacity %d outside 0-100", ErrInvalidSettings, s.BackgroundOpacity)
	}
	switch s.Position {
	case PositionBottom, PositionTop:
	default:
		return fmt.Errorf("%w: unknown position %q", ErrInvalidSettings, s.Position)
	}
	return nil
}

// Patch is a partial settings update; nil fields are left unchanged
type Patch struct {
	TranslationEnabled *bool     `json:"translationEnabled,omitempty"`
	TargetLanguage     *string   `json:"targetLanguage,omitempty"`
	FontSize           *string   `json:"fontSize,omitempty"`
	TextColor          *string   `json:"textColor,omitempty"`
	BackgroundOpacity  *int      `json:"backgroundOpacity,omitempty"`
	Position           *Position `json:"position,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply merges the patch into a copy of s and validates the result
func (s Settings) Apply(p Patch) (Settings, error) {
	next := s
	if p.TranslationEnabled != nil {
		next.TranslationEnabled = *p.TranslationEnabled
	}
	if p.TargetLanguage != nil {
		lang, err := NormalizeLanguage(*p.TargetLanguage)
		if err != nil {
			return s, err
		}
		next.TargetLanguage = lang
	}
	if p.FontSize != nil {
		next.FontSize = strings.TrimSpace(*p.FontSize)
	}
	if p.TextColor != nil {
		next.TextColor = strings.TrimSpace(*p.TextColor)
	}
	if p.BackgroundOpacity != nil {
		next.BackgroundOpacity = *p.BackgroundOpacity
	}
	if p.Position != nil {
		next.Position = *p.Position
	}

	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// NormalizeLanguage canonicalizes a BCP 47 tag ("PT-br" -> "pt-BR") and
// accepts the "auto" sentinel unchanged.
func NormalizeLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if strings.EqualFold(tag, AutoLanguage) {
		return AutoLanguage, nil
	}
	if tag == "" {
		return "", fmt.Errorf("%w: target language is required", ErrInvalidSettings)
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: target language %q: %v", ErrInvalidSettings, tag, err)
	}
	return parsed.String(), nil
}
