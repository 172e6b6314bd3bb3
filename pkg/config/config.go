package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                   string // connection string for the database
	URL                  string // base URL of the telemetry API server
	Token                string // API token used when sending data to the server
	WaitForServices      string // duration to wait for other services to be ready
	LogLevel             string // sets the log level (zap log level values)
	SQLLogLevel          string // sets the log level for sql subsystem
	LogFormat            string // text vs json
	LogConfig            string // path to log config file
	MigrationSourceURL   string // location of migration files
	EnableTelemetry      bool   // enable telemetry
	TelemetryEndpoint    string // endpoint for telemetry
	ProfilingPort        int    // port for profiling
	ServerAddr           string // listen addr for the HTTP server (insecure)
	TLSServerAddr        string // listen addr for the HTTP server (tls)
	TLSCertFile          string // path to TLS certificate
	TLSKeyFile           string // path to TLS key
	TLSCAFile            string // path to TLS CA
	TraefikCerts         string // path to traefik certs file
	TraefikCertDomain    string // the domain to lookup within the traefik certs
	IngestToken          string // token required from data loggers on ingest
	MinLoggerVersion     string // oldest logger firmware version accepted on ingest
	StaleDuration        string // duration after which a channel is considered stale
	NatsURL              string // if set, packets are relayed via this NATS server
	MaxClientsPerChannel int    // max number of concurrent live clients per channel
	SpeedUnit            string // unit for displaying speed values (mph, kph, ms)
	TempUnit             string // unit for displaying temperature values (c, f)
	BufferCapacity       int    // max number of packets kept in the history buffer
	PageSize             int    // page size for history fetches
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintMessage bool // if true, the packet payload will be print on debug level
}
