//go:build amd64

package idt

// Declarations for the assembly entry stubs in stubs_amd64.s. They are never
// called from Go; their addresses are collected by stubAddrs.

func exception0()
func exception1()
func exception2()
func exception3()
func exception4()
func exception5()
func exception6()
func exception7()
func exception8()
func exception10()
func exception11()
func exception12()
func exception13()
func exception14()
func exception16()
func exception17()
func exception18()
func exception19()
func exception20()
func exception21()
func exceptionEntry()
