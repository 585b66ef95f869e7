package ui_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forkguard/forkguard/internal/execshell"
	"github.com/forkguard/forkguard/internal/ui"
)

const (
	testWorkingDirectoryConstant   = "/tmp/fork"
	testCommandLabelConstant       = "git fetch upstream (in /tmp/fork)"
	testExecutionFailureConstant   = "binary not found"
	testStandardErrorConstant      = "fatal: could not read from remote repository"
	testStartedExpectationConstant = "Running " + testCommandLabelConstant
	testSuccessExpectationConstant = "Completed " + testCommandLabelConstant
	testFailureExpectationConstant = testCommandLabelConstant + " failed with exit code 128: " + testStandardErrorConstant
	testExecutionExpectationValue  = testCommandLabelConstant + " failed: " + testExecutionFailureConstant
)

func TestConsoleCommandEventLoggerEmitsMessages(testInstance *testing.T) {
	command := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        []string{"fetch", "upstream"},
			WorkingDirectory: testWorkingDirectoryConstant,
		},
	}

	testCases := []struct {
		name            string
		invoke          func(eventLogger *ui.ConsoleCommandEventLogger)
		expectedLevel   zapcore.Level
		expectedMessage string
	}{
		{
			name: "command_started",
			invoke: func(eventLogger *ui.ConsoleCommandEventLogger) {
				eventLogger.CommandStarted(command)
			},
			expectedLevel:   zapcore.DebugLevel,
			expectedMessage: testStartedExpectationConstant,
		},
		{
			name: "command_completed_success",
			invoke: func(eventLogger *ui.ConsoleCommandEventLogger) {
				eventLogger.CommandCompleted(command, execshell.ExecutionResult{ExitCode: 0})
			},
			expectedLevel:   zapcore.DebugLevel,
			expectedMessage: testSuccessExpectationConstant,
		},
		{
			name: "command_completed_failure",
			invoke: func(eventLogger *ui.ConsoleCommandEventLogger) {
				eventLogger.CommandCompleted(command, execshell.ExecutionResult{ExitCode: 128, StandardError: testStandardErrorConstant})
			},
			expectedLevel:   zapcore.WarnLevel,
			expectedMessage: testFailureExpectationConstant,
		},
		{
			name: "command_execution_failed",
			invoke: func(eventLogger *ui.ConsoleCommandEventLogger) {
				eventLogger.CommandExecutionFailed(command, errors.New(testExecutionFailureConstant))
			},
			expectedLevel:   zapcore.ErrorLevel,
			expectedMessage: testExecutionExpectationValue,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observedCore, observedLogs := observer.New(zapcore.DebugLevel)
			eventLogger := ui.NewConsoleCommandEventLogger(zap.New(observedCore))

			testCase.invoke(eventLogger)

			logEntries := observedLogs.All()
			require.Len(testInstance, logEntries, 1)
			require.Equal(testInstance, testCase.expectedLevel, logEntries[0].Level)
			require.Equal(testInstance, testCase.expectedMessage, logEntries[0].Message)
		})
	}
}

func TestNewConsoleCommandEventLoggerToleratesNilLogger(testInstance *testing.T) {
	eventLogger := ui.NewConsoleCommandEventLogger(nil)
	require.NotPanics(testInstance, func() {
		eventLogger.CommandStarted(execshell.ShellCommand{Name: execshell.CommandGit})
	})
}
