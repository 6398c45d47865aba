// Package npdm reads the access control block of a program descriptor and
// classifies how much filesystem access the program requests.
package npdm
