package validators

import "go.mongodb.org/mongo-driver/bson"

// SlotValidator keeps the counter inside [0, capacity] even for writes that
// bypass the application.
var SlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"service_id", "start_time", "end_time", "capacity", "reserved"},
		"properties": bson.M{
			"service_id": bson.M{"bsonType": "string", "minLength": 1},
			"start_time": bson.M{"bsonType": "date"},
			"end_time":   bson.M{"bsonType": "date"},
			"capacity":   bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
			"reserved":   bson.M{"bsonType": []string{"int", "long"}, "minimum": 0},
		},
	},
	"$expr": bson.M{"$lte": bson.A{"$reserved", "$capacity"}},
}

var HoldValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"slot_id", "session_id", "created_at", "expires_at"},
		"properties": bson.M{
			"slot_id":    bson.M{"bsonType": "string"},
			"session_id": bson.M{"bsonType": "string"},
			"expires_at": bson.M{"bsonType": "date"},
		},
	},
}

var PaymentEventValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"provider", "external_event_id", "type", "booking_id", "amount", "received_at", "processed"},
		"properties": bson.M{
			"provider":          bson.M{"bsonType": "string"},
			"external_event_id": bson.M{"bsonType": "string", "minLength": 1},
			"type": bson.M{
				"bsonType": "string",
				"enum":     []string{"payment.succeeded", "payment.failed", "refund.succeeded"},
			},
			"amount":    bson.M{"bsonType": "long"},
			"processed": bson.M{"bsonType": "bool"},
		},
	},
}

var GroupBookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"slot_id", "max_size", "booking_ids", "version"},
		"properties": bson.M{
			"max_size":    bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
			"booking_ids": bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			"version":     bson.M{"bsonType": "long"},
		},
	},
	"$expr": bson.M{"$lte": bson.A{bson.M{"$size": "$booking_ids"}, "$max_size"}},
}
