package pubsub

import (
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/feedledger-backend/pkg/config"
)

// TopicNames lists the distinct configured topics, ledger topic first.
func TopicNames(cfg config.PubSubConfig) []string {
	names := make([]string, 0, 2)
	for _, name := range []string{cfg.LedgerTopic, cfg.AlertsTopic} {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
// Full resource names pass through unchanged.
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, name)
}
