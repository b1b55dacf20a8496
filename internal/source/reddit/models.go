package reddit

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []child `json:"children"`
	} `json:"data"`
}

type child struct {
	Kind string `json:"kind"`
	Data post   `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Domain     string  `json:"domain"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	IsVideo    bool    `json:"is_video"`
	IsSelf     bool    `json:"is_self"`

	Media       *postMedia `json:"media"`
	SecureMedia *postMedia `json:"secure_media"`

	CrosspostParents []post `json:"crosspost_parent_list"`
}

type postMedia struct {
	RedditVideo *redditVideo `json:"reddit_video"`
}

type redditVideo struct {
	FallbackURL string `json:"fallback_url"`
	HLSURL      string `json:"hls_url"`
}
