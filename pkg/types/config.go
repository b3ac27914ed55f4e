// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StoreBackend identifies the database that holds task documents.
type StoreBackend string

const (
	BackendSQLite StoreBackend = "sqlite"
	BackendMongo  StoreBackend = "mongo"
)

// DBConfig holds the connection settings for the task store.
type DBConfig struct {
	// Backend selects the store implementation: sqlite or mongo.
	Backend StoreBackend `json:"backend" yaml:"backend"`

	// Path is the SQLite database file (e.g. "vaspdb.sqlite").
	Path string `json:"path" yaml:"path"`

	// Host is the MongoDB host (default 127.0.0.1).
	Host string `json:"host" yaml:"host"`

	// Port is the MongoDB port (default 27017).
	Port int `json:"port" yaml:"port"`

	// Database is the MongoDB database name (default "vasp").
	Database string `json:"database" yaml:"database"`

	// Collection holds the task documents (default "tasks").
	Collection string `json:"collection" yaml:"collection"`

	// User and Password authenticate against MongoDB when User is set.
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Timeout bounds connecting to the database (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DroneConfig holds the settings that shape task documents and their
// insertion.
type DroneConfig struct {
	// ParseDOS stores the total density of states of each calculation.
	ParseDOS bool `json:"parse_dos" yaml:"parse_dos"`

	// Simulate builds documents without touching the database.
	Simulate bool `json:"simulate" yaml:"simulate"`

	// UpdateDuplicates replaces documents whose dir_name already exists
	// (default true).
	UpdateDuplicates bool `json:"update_duplicates" yaml:"update_duplicates"`

	// AdditionalFields are copied into every task document.
	AdditionalFields map[string]any `json:"additional_fields,omitempty" yaml:"additional_fields,omitempty"`

	// Hostname overrides the host prefix of dir_name. Empty uses the
	// machine's hostname.
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// IngestConfig holds settings for batch and watch assimilation.
type IngestConfig struct {
	// Workers is the number of directories assimilated concurrently
	// (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// Roots are the directory trees scanned when none are given on the
	// command line.
	Roots []string `json:"roots,omitempty" yaml:"roots,omitempty"`

	// Debounce is how long watch mode waits for writes to settle
	// (default 2s).
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// Config groups the settings read from vaspdb.yaml.
type Config struct {
	DB     DBConfig     `json:"db" yaml:"db"`
	Drone  DroneConfig  `json:"drone" yaml:"drone"`
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`
}
