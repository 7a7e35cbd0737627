package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsEval(t *testing.T) {
	result := Validate("const x = eval('1+1'); return x;")
	assert.False(t, result.Safe)
	assert.NotEmpty(t, result.Issues)
}

func TestValidateRejectsDynamicFunction(t *testing.T) {
	result := Validate("const f = new Function('return 1'); return f();")
	assert.False(t, result.Safe)
}

func TestValidateRejectsRequire(t *testing.T) {
	result := Validate("const fs = require('fs'); return fs.readdirSync('.');")
	assert.False(t, result.Safe)
}

func TestValidateRejectsChildProcess(t *testing.T) {
	result := Validate("import { spawn } from 'child_process'; return spawn;")
	assert.False(t, result.Safe)
}

func TestValidateAllowsPlainArithmetic(t *testing.T) {
	result := Validate("const sum = context.a + context.b; return sum;")
	assert.True(t, result.Safe)
	assert.Empty(t, result.Issues)
}

func TestValidateWarningDoesNotBlock(t *testing.T) {
	result := Validate("return process.binding('something');")
	assert.True(t, result.Safe)
	assert.NotEmpty(t, result.Issues)
	assert.Equal(t, IssueWarning, result.Issues[0].Type)
}

func TestCodeHashIsDeterministicAndDistinguishing(t *testing.T) {
	h1 := CodeHash("return 1;")
	h2 := CodeHash("return 1;")
	h3 := CodeHash("return 2;")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 16)
}
