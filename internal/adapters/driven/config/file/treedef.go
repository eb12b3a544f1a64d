package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

// LoadTreeDefinition reads a YAML tree definition:
//
//	id: physics
//	name: Physics notes
//	principle: By subfield, then by phenomenon
//	seeds:
//	  - title: Optics
//	    gist: Light and its interactions
//	    children:
//	      - title: Scattering
//
// Unknown keys are rejected so typos surface instead of being ignored.
func LoadTreeDefinition(path string) (driving.CreateTreeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return driving.CreateTreeRequest{}, fmt.Errorf("read tree definition: %w", err)
	}
	return ParseTreeDefinition(data)
}

// ParseTreeDefinition decodes a YAML tree definition.
func ParseTreeDefinition(data []byte) (driving.CreateTreeRequest, error) {
	var req driving.CreateTreeRequest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("tree definition is empty: %w", domain.ErrInvalidInput)
		}
		return req, fmt.Errorf("parse tree definition: %v: %w", err, domain.ErrInvalidInput)
	}
	return req, nil
}
