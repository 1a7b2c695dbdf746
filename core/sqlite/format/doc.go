/*
Package format decodes the on-disk structures of SQLite database and
write-ahead-log files.

Every decoder treats its input as untrusted: lengths are checked before any
field is read, and field values are returned as (value, error) pairs instead
of sentinel values so a caller cannot mistake a damaged field for a real one.

# Database Header

The first 100 bytes of page 1:
  - Magic string: "SQLite format 3\0"
  - Page size (2 bytes, big-endian, 1 means 65536)
  - Reserved bytes per page (1 byte)
  - In-header database size (4 bytes), valid only when the
    version-valid-for number equals the file change counter

# WAL File

A 32-byte header (magic, format version 3007000, page size, checkpoint
sequence, two salts, two checksums) followed by frames. Each frame is a
24-byte header (page number, commit size, salts, cumulative checksum) and
one page image. The low bit of the magic selects the word order of the
checksum.

# References

  - SQLite File Format: https://www.sqlite.org/fileformat.html
  - WAL Format: https://www.sqlite.org/walformat.html
*/
package format
