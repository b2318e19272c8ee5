package preset

import "github.com/hazz-dev/devprobe/internal/checker"

// Defaults returns the built-in presets. Each call returns a fresh map.
func Defaults() map[string][]checker.Descriptor {
	return map[string][]checker.Descriptor{
		"web_dev": {
			checker.HTTPService("React Dev Server", "http://localhost:3000"),
			checker.HTTPService("Vue Dev Server", "http://localhost:8080"),
			checker.HTTPService("Angular Dev Server", "http://localhost:4200"),
			checker.HTTPService("Next.js Dev Server", "http://localhost:3000"),
		},
		"backend": {
			checker.HTTPService("Express Server", "http://localhost:3000"),
			checker.HTTPService("Django Server", "http://localhost:8000"),
			checker.HTTPService("Flask Server", "http://localhost:5000"),
			checker.HTTPService("FastAPI Server", "http://localhost:8000"),
			checker.HTTPService("Rails Server", "http://localhost:3000"),
		},
		"databases": {
			checker.PortService("PostgreSQL", "", 5432),
			checker.PortService("MySQL", "", 3306),
			checker.PortService("MongoDB", "", 27017),
			checker.PortService("Redis", "", 6379),
		},
		"tools": {
			checker.HTTPService("Docker Engine API", "http://localhost:2375"),
			checker.HTTPService("Elasticsearch", "http://localhost:9200"),
			checker.HTTPService("RabbitMQ Management", "http://localhost:15672"),
			checker.HTTPService("Mailhog", "http://localhost:8025"),
		},
	}
}

var wellKnownPorts = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	80:    "HTTP",
	110:   "POP3",
	143:   "IMAP",
	443:   "HTTPS",
	993:   "IMAPS",
	995:   "POP3S",
	2375:  "Docker Engine API",
	3000:  "React/Express dev server",
	3306:  "MySQL",
	4200:  "Angular dev server",
	5000:  "Flask dev server",
	5432:  "PostgreSQL",
	5672:  "RabbitMQ",
	6379:  "Redis",
	8000:  "Django/FastAPI dev server",
	8025:  "Mailhog",
	8080:  "HTTP alternate",
	9200:  "Elasticsearch",
	15672: "RabbitMQ Management",
	27017: "MongoDB",
}

// Describe names the service conventionally found on port. It returns ""
// for ports it does not know.
func Describe(port int) string {
	return wellKnownPorts[port]
}
