package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"slot_id",
			"session_id",
			"client_info",
			"amount_due",
			"currency",
			"status",
			"payment_status",
			"payment_deadline",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"slot_id": bson.M{
				"bsonType": "string",
			},

			"client_info": bson.M{
				"bsonType": "object",
				"required": []string{"name"},
				"properties": bson.M{
					"name": bson.M{
						"bsonType":  "string",
						"minLength": 2,
						"maxLength": 100,
					},
				},
			},

			"amount_due": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"currency": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 3,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"cancelled",
					"completed",
					"failed",
				},
			},

			"payment_status": bson.M{
				"bsonType": "string",
				"enum":     []string{"unpaid", "paid", "refunded"},
			},

			"payment_deadline": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
