package db

// Config carries the connection and pool settings for the decision store.
// Lifetime and idle-time values are seconds; Type selects the dialector.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
