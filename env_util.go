package couch

import "os"

// EnvURL names the environment variable tools and tests read the server
// URL from.
const EnvURL = "COUCH_URL"

func GetEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
