package s3

// Config selects a bucket and an optional key prefix that acts as the storage
// root. Endpoint switches to path-style addressing for MinIO and other
// S3-compatible services.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}
