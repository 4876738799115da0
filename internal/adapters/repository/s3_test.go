package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given SDK errors", t, func() {
		Convey("NoSuchKey maps to ErrNotFound", func() {
			err := classify(&types.NoSuchKey{}, "get", "b", "k")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(IsTransient(err), ShouldBeFalse)
		})

		Convey("an API error with a NotFound code maps to ErrNotFound", func() {
			err := classify(&smithy.GenericAPIError{Code: "NotFound", Message: "gone"}, "get", "b", "k")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("other API errors are transient", func() {
			err := classify(&smithy.GenericAPIError{Code: "SlowDown", Message: "throttled"}, "put", "b", "k")
			So(IsTransient(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "SlowDown")
		})

		Convey("context cancellation passes through untouched", func() {
			err := classify(context.Canceled, "list", "b", "")
			So(err, ShouldEqual, context.Canceled)
		})
	})
}

func TestNewS3Store(t *testing.T) {
	Convey("Building a store does not contact the endpoint", t, func() {
		s, err := NewS3Store(context.Background(), S3Config{
			Endpoint:       "http://127.0.0.1:9000",
			Region:         "us-east-1",
			AccessKey:      "minio",
			SecretKey:      "minio123",
			ForcePathStyle: true,
		})
		So(err, ShouldBeNil)
		So(s, ShouldNotBeNil)

		anon, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1", Anonymous: true})
		So(err, ShouldBeNil)
		So(anon, ShouldNotBeNil)
	})
}
