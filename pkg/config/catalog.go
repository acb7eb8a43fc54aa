package config

// DefaultCatalog is the set of files every host in the swarm pins.
func DefaultCatalog() map[string]FileConfig {
	return map[string]FileConfig{
		"ipad": {
			URL:  "https://www.apple.com/105/media/us/ipad-pro/2020/7be9ce7b-fa4e-4f54-968b-4a7687066ed8/films/feature/ipad-pro-feature-tpl-cc-us-2020_1280x720h.mp4",
			Hash: "QmfBsQa4iZRsKkELk7QGP4acN4sX6WfvBvVWT4Tz5yuE24",
		},
		"iphone": {
			URL:  "https://www.apple.com/v/home/f/images/heroes/iphone-se/hero__dvsxv8smkkgi_large.jpg",
			Hash: "Qmay7eKcsxZ5UkraAucEGtTsv6LzA5hn3P8JnQQcWaVwcN",
		},
		"apple1": {
			URL:  "https://www.apple.com/v/home/f/images/heroes/iphone-se/hero__dvsxv8smkkgi_large.jpg",
			Hash: "Qmay7eKcsxZ5UkraAucEGtTsv6LzA5hn3P8JnQQcWaVwcN",
		},
		"apple2": {
			URL:  "https://www.apple.com/v/home/h/images/heroes/iphone-11-spring/hero__dvsxv8smkkgi_large.jpg",
			Hash: "QmZuH57WXytRdj9bqNYcJxCRmqhLHsoQapmtiiH8EzfRwm",
		},
		"apple3": {
			URL:  "https://www.apple.com/v/home/h/images/promos/mothers-day/tile__cauwwcyyn9hy_large.jpg",
			Hash: "QmfChqUww9HhCt6SAapvFFrwacgjtCg27g8QiteUZxP9S3",
		},
		"apple4": {
			URL:  "https://www.apple.com/v/home/h/images/heroes/iphone-11-pro-spring/hero__dvsxv8smkkgi_large.jpg",
			Hash: "QmQviWwJoq5Hq8nHkbhhUWKhXHTfG2Lj2457yGsYV2P52S",
		},
		"apple5": {
			URL:  "https://www.apple.com/v/home/h/images/promos/wwdc-2020/tile__cauwwcyyn9hy_large.jpg",
			Hash: "QmRiMXxKPcVRV2Nzou3pGE1RFdMn6ANDeCr1i2QY9A9YAm",
		},
		"apple6": {
			URL:  "https://www.apple.com/v/home/h/images/promos/taa-refresh/tile__cauwwcyyn9hy_large.jpg",
			Hash: "Qma3U4FPDV556WS8Uv1HMrru6f3sX9dBjjwFkRFf5Bmb3J",
		},
		"apple7": {
			URL:  "https://www.apple.com/v/home/h/images/promos/watch-series-5/tile_aws5__fwphji1d8yeu_large.jpg",
			Hash: "QmQQ7sygVC6H1PHw2wDtj4VMyXUM2ezVjJGcAGuXwJo2LZ",
		},
		"apple8": {
			URL:  "https://www.apple.com/v/home/h/images/logos/covid-19-app/logo__dcojfwkzna2q_large.png",
			Hash: "QmPXaxuwPRbX5XjuNdbAS2AMK1N5J2RxLmEmxDzzMNnr3U",
		},
		"apple9": {
			URL:  "https://www.apple.com/v/home/h/images/promos/tv-plus-trying/tile__cauwwcyyn9hy_large.jpg",
			Hash: "QmXEhmHg6an55xH7nKnUYrTiotRMRMGMRCPHTjAJeNdEVt",
		},
	}
}
