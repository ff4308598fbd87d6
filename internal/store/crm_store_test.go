package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPage_Offset(t *testing.T) {
	tests := []struct {
		name string
		page Page
		want int
	}{
		{name: "first page", page: Page{Page: 1, Limit: 50}, want: 0},
		{name: "third page", page: Page{Page: 3, Limit: 20}, want: 40},
		{name: "zero page", page: Page{Page: 0, Limit: 20}, want: 0},
		{name: "zero limit", page: Page{Page: 5, Limit: 0}, want: 0},
		{name: "saturates", page: Page{Page: math.MaxInt/2 + 1, Limit: 4}, want: math.MaxInt},
		{name: "max page", page: Page{Page: math.MaxInt, Limit: 100}, want: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.page.Offset())
		})
	}
}
