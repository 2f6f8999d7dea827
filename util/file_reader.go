package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
)

// ParseJSONFile reads a file and parses it as JSON, using the provided object.
func ParseJSONFile(destination interface{}, path string) bool {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing JSON file")

	dat, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Error("Failed to read file")
		return false
	}
	if err := json.Unmarshal(dat, destination); err != nil {
		log.WithError(err).Error("Failed to parse file")
		return false
	}

	return true
}

// ParseTOMLFile reads a file and parses it as TOML, using the provided object.
func ParseTOMLFile(destination interface{}, path string) bool {
	log.WithFields(log.Fields{
		"datatype": fmt.Sprintf("%T", destination),
		"path":     path,
	}).Trace("Parsing TOML file")

	dat, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Error("Failed to read file")
		return false
	}
	if err := toml.Unmarshal(dat, destination); err != nil {
		log.WithError(err).Error("Failed to parse file")
		return false
	}

	return true
}

// ParseConfigFile - Parse a file as TOML or JSON depending on its extension (JSON if unknown).
func ParseConfigFile(destination interface{}, path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOMLFile(destination, path)
	default:
		return ParseJSONFile(destination, path)
	}
}
