// internal/service/template_service.go
package service

import (
	"strconv"
	"strings"

	"github.com/unclebandit/venue-broadcast/internal/model"
)

const unknownValue = "not specified"

const bodyTemplate = `Hello {venue_name},

{requester_name} is looking for a venue and your listing matches the request.

Event type: {event_type}
Date: {event_date}
Guests: {guest_count}
Budget: {budget_range}
Location: {location}

{requirements}

Reply to {requester_email} or call {requester_phone}.
`

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return unknownValue
	}
	return value
}

// MessageFields flattens a request and its recipient into template data.
func MessageFields(req *model.BroadcastRequest, venue model.Venue) map[string]string {
	c := req.Criteria

	eventType := string(c.EventType)
	if req.Kind == model.BroadcastKindQuick && eventType == "" {
		eventType = "quick request"
	}
	eventDate := ""
	if c.EventDate != nil {
		eventDate = c.EventDate.Format("2 January 2006")
	}
	guests := ""
	if c.GuestCount != nil {
		guests = strconv.Itoa(*c.GuestCount)
	}
	greeting := venue.Name
	if greeting == "" {
		greeting = "there"
	}

	return map[string]string{
		"venue_name":      greeting,
		"requester_name":  orUnknown(req.Requester.Name),
		"requester_email": orUnknown(req.Requester.Email),
		"requester_phone": orUnknown(req.Requester.Phone),
		"event_type":      orUnknown(eventType),
		"event_date":      orUnknown(eventDate),
		"guest_count":     orUnknown(guests),
		"budget_range":    orUnknown(c.BudgetRange),
		"location":        orUnknown(c.LocationPreference),
		"requirements":    strings.TrimSpace(c.Requirements),
	}
}

// RenderMessage builds the subject and body sent to one venue.
func RenderMessage(subjectTemplate string, req *model.BroadcastRequest, venue model.Venue) (string, string) {
	data := MessageFields(req, venue)
	return RenderTemplate(subjectTemplate, data), RenderTemplate(bodyTemplate, data)
}
