// Package feed defines the snapshot data model relayed from the remote API
// to the page injector.
package feed

import (
	"bytes"
	"strconv"
)

// Tweet is one post in a fetched feed snapshot. Field names follow the
// remote API's JSON contract.
type Tweet struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Username        string   `json:"username"`
	ProfileImageURL string   `json:"profile_image_url"`
	Verified        bool     `json:"verified"`
	Text            string   `json:"text"`
	Media           []string `json:"media"`
	ReplyCount      Count    `json:"reply_count"`
	RetweetCount    Count    `json:"retweet_count"`
	LikeCount       Count    `json:"like_count"`
	Views           Count    `json:"views"`
	CreatedAt       string   `json:"created_at"`
	URL             string   `json:"url"`
}

// Snapshot is one immutable copy of a user's feed at a point in time. It is
// produced by a feed fetch and consumed once by the page injector.
type Snapshot struct {
	SourceUser string  `json:"source_user"`
	Tweets     []Tweet `json:"tweets"`
}

// Count is an engagement count that tolerates servers sending numbers,
// numeric strings, null, or omitting the field entirely. Anything that does
// not parse as an integer decodes as zero.
type Count int64

// UnmarshalJSON implements lenient count decoding.
func (c *Count) UnmarshalJSON(data []byte) error {
	*c = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return nil
		}
		data = []byte(unquoted)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Some servers send counts as floats.
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return nil
		}
		n = int64(f)
	}
	if n < 0 {
		n = 0
	}
	*c = Count(n)
	return nil
}

// MarshalJSON renders the count as a plain integer.
func (c Count) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}
