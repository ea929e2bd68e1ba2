package entity

import "time"

// LogMessage is a log entry mirrored into the database.
type LogMessage struct {
	Time     time.Time `json:"time" bson:"time"`
	Level    string    `json:"level" bson:"level"`
	Category string    `json:"category" bson:"category"`
	Text     string    `json:"text" bson:"text"`
}

func (l *LogMessage) DataType() string {
	return "log"
}
