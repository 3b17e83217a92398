package plugin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Section names recognized in the Spira configuration file.
const (
	credentialsSection = "credentials"
	testCasesSection   = "test_cases"
	testSetsSection    = "test_sets"
)

// Config holds the Spira connection settings and the mapping tables loaded
// from the configuration file. Unset numeric settings are -1.
type Config struct {
	URL         string
	Username    string
	Token       string
	ProjectID   int
	ReleaseID   int
	TestSetID   int
	CreateBuild bool

	// TestCaseIDs maps lower-cased "classname.name" keys to Spira test
	// case ids. TestSetIDs maps lower-cased suite names to test set ids.
	TestCaseIDs map[string]int
	TestSetIDs  map[string]int
}

// LoadConfig reads a Spira configuration file. Lines hold key = value pairs
// grouped under [credentials], [test_cases] and [test_sets] headers; full-line
// # comments and unknown sections are ignored, and the last occurrence of a
// duplicated key wins.
func LoadConfig(path string) (*Config, error) {
	opts := ini.LoadOptions{
		KeyValueDelimiters:      "=",
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}
	file, err := ini.LoadSources(opts, path)
	if err != nil {
		logger := logrus.WithError(err).WithField("File", path)
		logger.Error("Failed to read configuration file")
		return nil, errors.New("failed to read configuration file: " + err.Error())
	}

	creds := file.Section(credentialsSection)
	cfg := &Config{
		URL:         creds.Key("url").String(),
		Username:    creds.Key("username").String(),
		Token:       creds.Key("token").String(),
		ProjectID:   intSetting(creds, "project_id"),
		ReleaseID:   intSetting(creds, "release_id"),
		TestSetID:   intSetting(creds, "test_set_id"),
		CreateBuild: strings.EqualFold(creds.Key("create_build").String(), "true"),
		TestCaseIDs: mappingTable(file.Section(testCasesSection)),
		TestSetIDs:  mappingTable(file.Section(testSetsSection)),
	}
	return cfg, nil
}

// intSetting parses a numeric credentials setting, keeping -1 when the key is
// absent, empty or not a number.
func intSetting(sec *ini.Section, name string) int {
	value := strings.TrimSpace(sec.Key(name).String())
	if value == "" {
		return -1
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithField("Key", name).Warnf("Ignoring non-numeric value %q in [%s]", value, sec.Name())
		return -1
	}
	return id
}

// mappingTable builds a lookup table from a mapping section. Keys are
// lower-cased so report lookups are case-insensitive; entries whose value is
// not a number are dropped.
func mappingTable(sec *ini.Section) map[string]int {
	table := make(map[string]int, len(sec.Keys()))
	for _, key := range sec.Keys() {
		id, err := strconv.Atoi(strings.TrimSpace(key.String()))
		if err != nil {
			logrus.WithField("Key", key.Name()).Warnf("Ignoring mapping with non-numeric id %q in [%s]", key.String(), sec.Name())
			continue
		}
		table[strings.ToLower(key.Name())] = id
	}
	return table
}
