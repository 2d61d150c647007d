package store

// Physical layout of the event and consumer tables. Schema creation itself
// lives in internal/migrations — this package only needs the names to
// build SQL.
const (
	eventsTable   = "event"
	consumerTable = "consumer"
)

// eventColumns is the column list used by every SELECT against the events
// table, in a fixed order matched by rowEvent's Scan calls.
var eventColumns = []string{
	"id", "name", "aggregate", "version", "data", "metadata", "topic", "tenant", "timestamp",
}
