package job

const (
	// LabelPrefix is reserved for labels and annotations owned by the adapter.
	LabelPrefix = "jobadapter.k8s.skillcoder.com/"

	// ResourceLabel is set on every job-owned object to the job resource name.
	ResourceLabel = LabelPrefix + "job"

	// NameLabel and VersionLabel carry the job identity on pods.
	NameLabel    = LabelPrefix + "job-name"
	VersionLabel = LabelPrefix + "job-version"

	// Secret data keys, each holding base64(JSON) or an empty string.
	SecretKeyGitCredentials = "git_credentials"
	SecretKeyBuildEnv       = "secret_build_env"
	SecretKeyRuntimeEnv     = "secret_runtime_env"
)
