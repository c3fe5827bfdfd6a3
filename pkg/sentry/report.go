// Copyright 2025 PulseGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"

	sentrygo "github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// IssueType is the severity of a reported issue.
type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// ReportIssue logs the error and, when reporting is enabled, forwards it.
func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Fatalf("fatal issue: %v", err)
	case IssueTypeError:
		log.Errorf("%v", err)
	case IssueTypeWarning:
		log.Warnf("%v", err)
	}

	if !isEnabled() || issueType == IssueTypeFatal {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetLevel(toSentryLevel(issueType))
		sentrygo.CaptureException(err)
	})
}

// ReportIssuef formats an error message and reports it.
func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportEngineError reports an engine-related error with instance context.
func ReportEngineError(log *zap.SugaredLogger, instanceID, engineType, operation string, err error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Errorw("engine error",
		"instance_id", instanceID,
		"engine_type", engineType,
		"operation", operation,
		"error", err,
	)
	if !isEnabled() {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetLevel(sentrygo.LevelError)
		scope.SetTag("instance_id", instanceID)
		scope.SetTag("engine_type", engineType)
		scope.SetTag("operation", operation)
		sentrygo.CaptureException(err)
	})
}

// ReportEngineErrorf is the formatting variant of ReportEngineError.
func ReportEngineErrorf(log *zap.SugaredLogger, instanceID, engineType, operation, template string, args ...interface{}) {
	ReportEngineError(log, instanceID, engineType, operation, fmt.Errorf(template, args...))
}

func toSentryLevel(issueType IssueType) sentrygo.Level {
	switch issueType {
	case IssueTypeWarning:
		return sentrygo.LevelWarning
	case IssueTypeFatal:
		return sentrygo.LevelFatal
	default:
		return sentrygo.LevelError
	}
}
