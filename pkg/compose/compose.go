// Package compose knows the Docker Compose side of the inspection pipeline:
// the labels Compose stamps onto containers and a provider recomputing config
// hashes from the compose files a unit was deployed from.
package compose

import "strings"

// Docker Compose labels.
const (
	// ProjectLabel holds the compose project name.
	ProjectLabel = "com.docker.compose.project"
	// ServiceLabel holds the sub-service name within the project.
	ServiceLabel = "com.docker.compose.service"
	// ConfigHashLabel holds the config hash computed at deploy time.
	ConfigHashLabel = "com.docker.compose.config-hash"
	// ConfigFilesLabel lists the compose files the project was deployed from,
	// comma-separated.
	ConfigFilesLabel = "com.docker.compose.project.config_files"
	// WorkingDirLabel holds the project's working directory.
	WorkingDirLabel = "com.docker.compose.project.working_dir"
)

// IsManaged reports whether the labels identify a Compose-managed container.
func IsManaged(labels map[string]string) bool {
	_, ok := labels[ProjectLabel]

	return ok
}

// ConfigFiles parses the comma-separated config files label.
func ConfigFiles(labels map[string]string) []string {
	raw, ok := labels[ConfigFilesLabel]
	if !ok || raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	files := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			files = append(files, trimmed)
		}
	}

	return files
}
