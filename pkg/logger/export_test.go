package logger

// NewTee exposes the console and file tee to tests.
var NewTee = newTee
