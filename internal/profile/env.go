package profile

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies ORCA_* environment overrides to p.
func LoadFromEnv(p *Profile) error {
	if uri := os.Getenv("ORCA_CONTROL_URI"); uri != "" {
		p.ControlURI = uri
	}

	if seed := os.Getenv("ORCA_SEED"); seed != "" {
		s, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("profile: ORCA_SEED: %w", err)
		}
		p.Seed = &s
	}

	if count := os.Getenv("ORCA_PERSON_COUNT"); count != "" {
		n, err := strconv.Atoi(count)
		if err != nil {
			return fmt.Errorf("profile: ORCA_PERSON_COUNT: %w", err)
		}
		p.PersonCount = n
	}

	if testTime := os.Getenv("ORCA_TEST_TIME"); testTime != "" {
		d, err := time.ParseDuration(testTime)
		if err != nil {
			return fmt.Errorf("profile: ORCA_TEST_TIME: %w", err)
		}
		p.TestTime = d
	}

	if model := os.Getenv("ORCA_MODEL"); model != "" {
		p.Model = model
	}

	return nil
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
