package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	got := service.RenderTemplate("Hi {name}, {missing} stays", map[string]string{"name": "Ana"})

	assert.Equal(t, "Hi Ana, {missing} stays", got)
}

func TestRenderMessage(t *testing.T) {
	req := request("r1")
	date := time.Date(2027, 6, 12, 0, 0, 0, 0, time.UTC)
	req.Criteria.EventDate = &date
	req.Criteria.BudgetRange = "200-300k CZK"
	req.Criteria.Requirements = "Vegetarian menu"

	subj, body := service.RenderMessage(subject, req, venue("v1", "a@venues.cz"))

	assert.Equal(t, "New event enquiry: wedding for 80 guests", subj)
	assert.True(t, strings.HasPrefix(body, "Hello Venue v1,"))
	assert.Contains(t, body, "Date: 12 June 2027")
	assert.Contains(t, body, "Budget: 200-300k CZK")
	assert.Contains(t, body, "Vegetarian menu")
	assert.Contains(t, body, "Reply to jana@example.com or call not specified.")
}

func TestRenderQuickRequest(t *testing.T) {
	req := &model.BroadcastRequest{
		Kind:      model.BroadcastKindQuick,
		Requester: model.Requester{Name: "Petr", Email: "petr@example.com", Phone: "+420 777 000 111"},
		Criteria:  model.Criteria{Requirements: "Small team offsite"},
	}

	subj, body := service.RenderMessage(subject, req, model.Venue{})

	assert.Equal(t, "New event enquiry: quick request for not specified guests", subj)
	assert.True(t, strings.HasPrefix(body, "Hello there,"))
	assert.Contains(t, body, "+420 777 000 111")
}
