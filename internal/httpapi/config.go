package httpapi

// maxBodyBytes caps the request body for the multipart endpoints. Model
// uploads are whole firmware payloads, so the default is generous.
var maxBodyBytes int64 = 64 << 20

// multipartMemory is how much of a parsed multipart body stays in memory
// before spilling to disk.
const multipartMemory int64 = 32 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 64 << 20
		return
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
