package upstream

// Tag is a git tag of the upstream repository.
type Tag struct {
	Name   string    `json:"name"`
	Commit CommitRef `json:"commit"`
}

// Branch is a branch of the upstream repository.
type Branch struct {
	Name   string    `json:"name"`
	Commit CommitRef `json:"commit"`
}

// CommitRef points at a commit by SHA.
type CommitRef struct {
	SHA string `json:"sha"`
}

// Commit is a commit returned by the commits endpoint.
type Commit struct {
	SHA string `json:"sha"`
}
