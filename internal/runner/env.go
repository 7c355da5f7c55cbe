package runner

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles reads dotenv files in order; later files override earlier ones
func LoadEnvFiles(paths ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	return env, nil
}

// ParseVars parses key=value assignments
func ParseVars(assignments []string) (map[string]string, error) {
	vars := make(map[string]string, len(assignments))
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", a)
		}
		vars[key] = value
	}
	return vars, nil
}
