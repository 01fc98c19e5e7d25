package record

// LogRecord is one parsed application log entry. Timestamp, Level, and Message
// are always set on a produced record; the location fields are best-effort and
// may be empty depending on the dialect and message content.
type LogRecord struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Context    string `json:"context,omitempty"`
	Controller string `json:"controller,omitempty"`
	LineNumber string `json:"line_number,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// ServiceStatus describes one monitored systemd unit.
type ServiceStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Active  bool   `json:"active"`
	Enabled bool   `json:"enabled"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemMetrics is a point-in-time snapshot of host resource usage.
type SystemMetrics struct {
	Timestamp       string             `json:"timestamp"`
	CPUPercent      float64            `json:"cpu_percent"`
	MemoryPercent   float64            `json:"memory_percent"`
	MemoryAvailable uint64             `json:"memory_available"`
	DiskUsage       map[string]float64 `json:"disk_usage"`
	NetworkIO       map[string]uint64  `json:"network_io"`
	LoadAverage     []float64          `json:"load_average"`
}

// Project is one monitored log source: a framework dialect plus the file or
// directory its logs live in.
type Project struct {
	Name      string `yaml:"name" json:"name"`
	Framework string `yaml:"framework_type" json:"framework_type"`
	LogPath   string `yaml:"log_path" json:"log_path"`
}
