// Package installed indexes titles installed on a storage medium.
//
// A medium keeps its content archives under Contents/registered, either as
// plain "<id>.nca" files or as "<id>.nca" directories holding numbered
// chunks. Open reads every archive header through a ContentOpener, decodes
// the metadata of meta content and groups the archives into titles and
// applications. Titles applies the emission rule used for listings: a base
// title is listed only when it has its own metadata or no patch with
// metadata exists.
package installed
