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

package recognition

import (
	"errors"
	"fmt"
)

// Error taxonomy for the recognition session
var (
	// ErrUnsupported means the host has no speech recognition capability
	ErrUnsupported = errors.New("speech recognition not supported")
	// ErrTransient covers recoverable conditions such as a no-speech timeout
	ErrTransient = errors.New("transient recognition error")
	// ErrFatal covers every other recognizer error
	ErrFatal = errors.New("recognition error")
)

// ErrorNoSpeech is the host error kind reported when nothing was heard
const ErrorNoSpeech = "no-speech"

// HostError is an error reported by the host recognizer
type HostError struct {
	Kind    string
	Message string
}

func (e *HostError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognizer error: %s", e.Kind)
	}
	return fmt.Sprintf("recognizer error: %s: %s", e.Kind, e.Message)
}

// Unwrap maps the host error kind onto the taxonomy
func (e *HostError) Unwrap() error {
	return Classify(e.Kind)
}

// Classify returns ErrTransient for kinds recovered by a scheduled restart
// and ErrFatal for everything else.
func Classify(kind string) error {
	if kind == ErrorNoSpeech {
		return ErrTransient
	}
	return ErrFatal
}

// Fragment is one recognized phrase inside a result batch
type Fragment struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// ResultBatch is one delivery of results from the host recognizer.
// Fragments before ResultIndex were already delivered in earlier batches.
type ResultBatch struct {
	ResultIndex int        `json:"resultIndex"`
	Results     []Fragment `json:"results"`
}

// StreamOptions configure the host recognition stream
type StreamOptions struct {
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interimResults"`
	Language       string `json:"lang"`
	AudioSource    string `json:"audioSource"`
}

// Callbacks receive host recognition events. Engines must not invoke them
// synchronously from Stream.Start or Stream.Stop.
type Callbacks struct {
	OnResult func(ResultBatch)
	OnError  func(kind, message string)
	OnEnd    func()
}

// Engine is the host speech-to-text capability
type Engine interface {
	// Supported reports whether the host can recognize speech at all
	Supported() bool
	// Open creates a stream bound to the callbacks. It does not start listening.
	Open(opts StreamOptions, callbacks Callbacks) (Stream, error)
}

// Stream is one host recognition stream. Start may be called again after
// the host ended the stream.
type Stream interface {
	Start() error
	Stop() error
}
