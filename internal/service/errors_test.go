package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToSnakeKeepsAcronyms(t *testing.T) {
	cases := map[string]string{
		"UploadID":       "upload_id",
		"CourseID":       "course_id",
		"MonthlyAverage": "monthly_average",
		"HTTPStatus":     "http_status",
		"Year":           "year",
	}
	for in, want := range cases {
		require.Equal(t, want, toSnake(in), in)
	}
}
