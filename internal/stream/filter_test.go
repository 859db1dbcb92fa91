package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		modules  string
		userID   string
		event    notify.Event
		admits   bool
		describe string
	}{
		{
			name:     "empty admits all",
			modules:  "",
			event:    notify.Event{Module: "articles"},
			admits:   true,
			describe: "all modules",
		},
		{
			name:     "whitespace admits all",
			modules:  "  ",
			event:    notify.Event{Module: "users"},
			admits:   true,
			describe: "all modules",
		},
		{
			name:     "listed module",
			modules:  "articles, vacancies",
			event:    notify.Event{Module: "vacancies"},
			admits:   true,
			describe: "articles, vacancies",
		},
		{
			name:     "unlisted module",
			modules:  "articles",
			event:    notify.Event{Module: "vacancies"},
			admits:   false,
			describe: "articles",
		},
		{
			name:     "blank entries dropped",
			modules:  "articles,,",
			event:    notify.Event{Module: "articles"},
			admits:   true,
			describe: "articles",
		},
		{
			name:     "only separators admits nothing",
			modules:  ",",
			event:    notify.Event{Module: "articles"},
			admits:   false,
			describe: "no modules",
		},
		{
			name:     "unknown module never matches",
			modules:  "nope",
			event:    notify.Event{Module: "articles"},
			admits:   false,
			describe: "nope",
		},
		{
			name:     "public event reaches user session",
			userID:   "u1",
			event:    notify.Event{Module: "articles"},
			admits:   true,
			describe: "all modules",
		},
		{
			name:     "own user event",
			userID:   "u1",
			event:    notify.Event{Module: "articles", UserID: "u1"},
			admits:   true,
			describe: "all modules",
		},
		{
			name:     "other user event",
			userID:   "u1",
			event:    notify.Event{Module: "articles", UserID: "u2"},
			admits:   false,
			describe: "all modules",
		},
		{
			name:     "anonymous session sees user events",
			event:    notify.Event{Module: "articles", UserID: "u2"},
			admits:   true,
			describe: "all modules",
		},
		{
			name:     "module and user both apply",
			modules:  "resume",
			userID:   "u1",
			event:    notify.Event{Module: "articles", UserID: "u1"},
			admits:   false,
			describe: "resume",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFilter(tt.modules, tt.userID)
			assert.Equal(t, tt.admits, f.Admits(tt.event))
			assert.Equal(t, tt.describe, f.Describe())
		})
	}
}

func TestFilter_Modules(t *testing.T) {
	assert.Nil(t, ParseFilter("", "").Modules())
	assert.Equal(t, []string{"articles", "users"}, ParseFilter(" users ,articles", "").Modules())
	assert.Empty(t, ParseFilter(",", "").Modules())
	assert.Equal(t, "u1", ParseFilter("", " u1 ").UserID())
}

func TestFilter_ZeroValueAdmitsAll(t *testing.T) {
	var f Filter
	assert.True(t, f.Admits(notify.Event{Module: "anything", UserID: "x"}))
	assert.True(t, NewFilter(nil, "").Admits(notify.Event{Module: "articles"}))
}
