// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 reads lake inputs from, and writes lake tables to, Amazon S3 or
// an S3-compatible service.
package s3

import (
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// Config holds what is needed to reach S3. Credentials are given explicitly;
// if both keys are empty the SDK's default credential chain is used.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint, if set, points at an S3-compatible service instead of AWS.
	// Requests then use path-style addressing.
	Endpoint string
}

// NewSession gets an AWS session for c.
func NewSession(c Config) (*session.Session, error) {
	cfg := aws.NewConfig().WithRegion(c.Region)
	if c.AccessKeyID != "" || c.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(c.AccessKeyID, c.SecretAccessKey, ""))
	}
	if c.Endpoint != "" {
		cfg = cfg.WithEndpoint(c.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	return sess, nil
}

// NewClient gets an S3 client for c.
func NewClient(c Config) (*s3.S3, error) {
	sess, err := NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// IsURL reports whether location names an S3 location rather than a local
// path.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// ParseURL splits an s3://bucket/prefix location into its bucket and key
// prefix. The prefix has no leading or trailing slash.
func ParseURL(location string) (bucket, prefix string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", errors.Wrapf(err, "parsing '%s'", location)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", errors.Errorf("'%s' is not of the form s3://bucket/prefix", location)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// join builds an object key from a prefix and a slash separated name.
func join(prefix, name string) string {
	if prefix == "" {
		return strings.TrimPrefix(path.Clean("/"+name), "/")
	}
	return path.Join(prefix, name)
}

// dirPrefix is the listing prefix for everything "under" key.
func dirPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}
