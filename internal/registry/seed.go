package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a registry seed file:
//
//	users:
//	  - name: Alice
//	    email: alice@example.com
//	    role: admin
type seedFile struct {
	Users []CreateUserInput `yaml:"users"`
}

// LoadSeed reads a YAML seed file and creates every user in it. It fails
// on the first invalid entry so a broken seed file is noticed at startup.
func (r *Registry) LoadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for i, in := range sf.Users {
		if _, err := r.Create(in); err != nil {
			return i, fmt.Errorf("seed user %d (%s): %w", i, in.Name, err)
		}
	}
	return len(sf.Users), nil
}
