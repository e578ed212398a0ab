// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package policy

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Definition is one policy entry in a policy file.
type Definition struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	Organization string    `yaml:"organization"`
	Contact      string    `yaml:"contact"`
	Description  string    `yaml:"description"`
	Settings     Overrides `yaml:"settings"`
}

// File is the on-disk policy file layout:
//
//	active: hurricane_bobo
//	policies:
//	  - id: hurricane_bobo
//	    name: Hurricane Response 2024
//	    settings:
//	      rate_limit: 600
type File struct {
	Active   string       `yaml:"active"`
	Policies []Definition `yaml:"policies"`
}

// ParseFile decodes a policy file.
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse policy file: %w", err)
	}
	return f, nil
}

// LoadFile reads path and registers its policies with e. When the file names
// an active policy it is activated.
func LoadFile(e *Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return err
	}
	return Apply(e, f)
}

// Apply registers every definition of f and activates f.Active if set.
func Apply(e *Engine, f File) error {
	for _, d := range f.Policies {
		if _, err := e.Create(d.Name, d.Organization, d.Contact, d.Description, d.Settings, d.ID); err != nil {
			return err
		}
	}
	if f.Active != "" {
		return e.Activate(f.Active)
	}
	return nil
}

func intp(v int) *int { return &v }

// HurricaneDeployment is the deployment policy used when no policy file is
// configured.
func HurricaneDeployment() Definition {
	return Definition{
		ID:           "Hurricane_Bobo",
		Name:         "Hurricane Response 2024",
		Organization: "Orange Cross",
		Contact:      "hurricane-response@orangecross.org",
		Description:  "Emergency response protocol for 2025 Atlantic hurricane season",
		Settings: Overrides{
			BlockInterval: intp(180),
			SizeLimit:     intp(10240),
			RateLimit:     intp(600),
			PriorityLevels: map[string]int{
				"evacuation": 1,
				"medical":    2,
				"shelter":    3,
				"supplies":   4,
				"personal":   5,
			},
			Types: []string{"check_in", "message", "alert", "damage_report"},
		},
	}
}

// Bootstrap fills e from the policy file at path, or with the built-in
// hurricane deployment when path is empty. The resulting active policy id is
// returned.
func Bootstrap(e *Engine, path string) (string, error) {
	if path != "" {
		if err := LoadFile(e, path); err != nil {
			return "", err
		}
		return e.ActiveID(), nil
	}
	d := HurricaneDeployment()
	id, err := e.Create(d.Name, d.Organization, d.Contact, d.Description, d.Settings, d.ID)
	if err != nil {
		return "", err
	}
	if err := e.Activate(id); err != nil {
		return "", err
	}
	return id, nil
}
