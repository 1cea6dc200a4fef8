/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# CatalogDB: schema and access control metadata of an analytical database

## Why a dedicated catalog?

1, one source of truth for databases, tables, columns, dictionaries, views and dashboards

2, role based access control over every securable object

3, every mutation is one transaction over the system store and the database store, memory follows the commit

## Data Model

* System catalog, users, databases, roles and the grants held by roles. There is one per process.

* Database catalog, tables, columns, shared string dictionaries, sharding topology, views, dashboards and links of one database.

* Role graph, group roles hold privileges on db objects, user roles are members of group roles. Every user has a private group role named after the user.

* Table, a logical table with N shards resolves to N physical tables named <table>_shard_#<k>.

* Dictionary, shared by every column referencing it, removed when the last reference goes away.

## Architecture

* catalogd opens the system catalog and the catalog of every database, then serves stats and metrics over http.

* The registry holds at most one live catalog per database and is torn down before the system catalog.

### Storage

every database has its own pebble or rocksdb instance, the system store commits last

### Lock order

system catalog before database catalog

## Building Blocks

* Pebble
* Rocksdb
* Prometheus

*/

package catalogdb
